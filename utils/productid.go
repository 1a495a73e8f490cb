// utils/productid.go
package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// ProductIDLength is the number of hex characters kept from the digest.
const ProductIDLength = 16

// ProductID derives the stable product fingerprint used to join the same product
// across period files. Missing fields are passed as empty strings.
func ProductID(name, brand, link string) string {
	sum := md5.Sum([]byte(name + "|" + brand + "|" + link))
	return hex.EncodeToString(sum[:])[:ProductIDLength]
}

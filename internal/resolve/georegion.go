package resolve

// regionByPrefix buckets hashed IPs into coarse regions by the leading
// hex character of the hash. Sixteen prefixes fold into eight fixed
// buckets, so a given hash always annotates the same region.
var regionByPrefix = map[byte]string{
	'0': "us-northeast", '1': "us-northeast",
	'2': "us-mid-atlantic", '3': "us-mid-atlantic",
	'4': "us-southeast", '5': "us-southeast",
	'6': "us-midwest", '7': "us-midwest",
	'8': "us-southwest", '9': "us-southwest",
	'a': "us-mountain", 'b': "us-mountain",
	'c': "us-pacific", 'd': "us-pacific",
	'e': "us-noncontiguous", 'f': "us-noncontiguous",
}

// regionForIPHash returns the region bucket for a hashed IP, or empty
// when the hash is absent or its prefix is not a hex character.
func regionForIPHash(ipHash string) string {
	if ipHash == "" {
		return ""
	}
	c := ipHash[0]
	if c >= 'A' && c <= 'F' {
		c += 'a' - 'A'
	}
	return regionByPrefix[c]
}

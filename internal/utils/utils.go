package utils

// ToStringSlice filters a decoded JSON array down to its string elements.
// Non-string elements are dropped rather than stringified.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

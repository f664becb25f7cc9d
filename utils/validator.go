// utils/validator.go - Input validation
package utils

import (
	"regexp"
	"strings"
)

// variantIDPattern matches release-chrom-pos-ref-alt, e.g. grch37-1-1000-A-G.
var variantIDPattern = regexp.MustCompile(`^(?i:grch37|grch38)-(?i:chr)?([1-9]|1[0-9]|2[0-2]|X|Y|MT?)-[1-9][0-9]*-[ACGTN]+-[ACGTN]+$`)

// ValidateVariantID checks the primary variant identifier of a thread
func ValidateVariantID(variantID string) (bool, string) {
	if variantID == "" {
		return false, "Variant id is required"
	}
	if !variantIDPattern.MatchString(variantID) {
		return false, "Variant id must look like grch37-1-1000-A-G"
	}
	return true, ""
}

// NormalizeVariantID lower-cases the assembly and upper-cases the rest so the
// (org, variant) uniqueness holds regardless of input casing.
func NormalizeVariantID(variantID string) string {
	variantID = SanitizeInput(variantID)
	parts := strings.SplitN(variantID, "-", 2)
	if len(parts) != 2 {
		return variantID
	}
	rest := strings.ToUpper(parts[1])
	rest = strings.TrimPrefix(rest, "CHR")
	return strings.ToLower(parts[0]) + "-" + rest
}

// SanitizeInput removes potentially harmful characters
func SanitizeInput(input string) string {
	// Remove leading/trailing spaces
	input = strings.TrimSpace(input)

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	return input
}

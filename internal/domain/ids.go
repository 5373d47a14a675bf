package domain

import "fmt"

// Sequence names used to generate human-readable identifiers.
const (
	SeqBook        = "book"
	SeqMember      = "member"
	SeqTransaction = "transaction"
)

var idPrefixes = map[string]string{
	SeqBook:        "BOOK",
	SeqMember:      "M",
	SeqTransaction: "TXN",
}

// FormatID renders a sequence value as BOOK-00001, M-00001 or TXN-00001.
func FormatID(sequence string, n int64) string {
	prefix, ok := idPrefixes[sequence]
	if !ok {
		prefix = sequence
	}
	return fmt.Sprintf("%s-%05d", prefix, n)
}

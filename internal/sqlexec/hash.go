package sqlexec

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// PreviewLength is the number of characters kept in an SQL preview.
const PreviewLength = 150

// Hash returns a cheap 32-bit rolling hash of sql (h = h*31 + c) in decimal.
// c walks UTF-16 code units, so characters outside the BMP fold in as two
// surrogates and hashes match those written by the hosted console.
// It is meant for grouping and search in the audit log and can collide.
func Hash(sql string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(sql)) {
		h = h*31 + int32(c)
	}
	return strconv.FormatInt(int64(h), 10)
}

// Preview returns the first PreviewLength characters of sql, ellipsized when cut.
func Preview(sql string) string {
	runes := []rune(sql)
	if len(runes) <= PreviewLength {
		return sql
	}
	return string(runes[:PreviewLength]) + "..."
}

// NewOperationID generates an id of the form sql-exec-<unix-millis>-<random>.
func NewOperationID() string {
	return newOperationID(time.Now())
}

func newOperationID(now time.Time) string {
	return fmt.Sprintf("sql-exec-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

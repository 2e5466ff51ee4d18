package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("3f2a", "people.csv")
	assert.Equal(t, "imports/3f2a/people.csv", key)

	// Client-supplied paths are flattened to their base name.
	key = ObjectKey("3f2a", "../../etc/passwd")
	assert.Equal(t, "imports/3f2a/passwd", key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("people.csv"))
	assert.Equal(t, "text/csv", contentType("PEOPLE.CSV"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", contentType("book.xlsx"))
	assert.Equal(t, "application/octet-stream", contentType("dump.bin"))
}

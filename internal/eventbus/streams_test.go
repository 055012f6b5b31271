package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectForCollection(t *testing.T) {
	assert.Equal(t, "ankurah.updates.tasks", SubjectForCollection("tasks"))
	assert.Equal(t, "ankurah.updates.notes", SubjectForCollection("notes"))
}

package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"verify", "admin"}, SplitList(" verify, ,verify,admin "))
	assert.Equal(t, []string{"https://a.example"}, SplitList("https://a.example"))
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
}

func TestDedupeAndTrim_PreservesOrder(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, DedupeAndTrim([]string{" b", "a ", "b"}))
}

package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiErrors(t *testing.T) {
	errs := NewMultiErrors()
	assert.False(t, errs.HasErrors())

	errs.Add("acct_2", "sync already running", nil)
	errs.Add("acct_1", "account not found", nil)
	errs.Add("acct_1", "second failure", nil)

	assert.True(t, errs.HasErrors())
	assert.Equal(t, 2, errs.Count())
	assert.Equal(t, "acct_1: account not found | acct_1: second failure | acct_2: sync already running", errs.Error())
}

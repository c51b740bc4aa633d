package reflector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct{}

func TestTypeInfo(t *testing.T) {
	byValue := TypeInfoOf(sample{})
	byPtr := TypeInfoOf(&sample{})
	generic := TypeInfoFor[*sample]()

	require.Equal(t, "github.com/codewandler/esrepo-go/internal/reflector.sample", byValue.Name)
	require.Equal(t, "sample", byValue.ShortName)
	require.Equal(t, byValue, byPtr)
	require.Equal(t, byValue, generic)

	_, ok := byPtr.New().(*sample)
	require.True(t, ok)
}

func TestTypeInfo_nil(t *testing.T) {
	require.True(t, TypeInfoOf(nil).IsZero())
}

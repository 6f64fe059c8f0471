package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_TasksSortedByName(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		_, err := New(ctx, reg, name, Func(noop), Options{})
		require.NoError(t, err)
	}

	tasks := reg.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "alpha", tasks[0].Name())
	assert.Equal(t, "bravo", tasks[1].Name())
	assert.Equal(t, "charlie", tasks[2].Name())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg, _ := setupRegistry(t)

	_, err := reg.Lookup("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

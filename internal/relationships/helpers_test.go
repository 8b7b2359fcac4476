package relationships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vidfriends/friendships/internal/db"
	"github.com/vidfriends/friendships/internal/repositories"
)

type storeFactory struct {
	name string
	open func(t *testing.T) repositories.RelationshipRepository
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) repositories.RelationshipRepository {
			return repositories.NewInMemoryRelationshipRepository()
		}},
		{name: "sqlite", open: openSQLiteStore},
	}
}

func openSQLiteStore(t *testing.T) repositories.RelationshipRepository {
	t.Helper()

	handle, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.CloseGorm(handle) })

	repo := repositories.NewGormRelationshipRepository(handle)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func forEachStore(t *testing.T, fn func(t *testing.T, store repositories.RelationshipRepository)) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			fn(t, factory.open(t))
		})
	}
}

package estests

import (
	"testing"

	"github.com/codewandler/esrepo-go/core/es"
)

func TestInMemoryStore(t *testing.T) {
	RunEventStoreSuite(t, func(t *testing.T) es.EventStore { return es.NewInMemoryStore() })
}

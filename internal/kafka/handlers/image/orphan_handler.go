package image

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-storage/internal/model"
)

// remover deletes objects through the internal object store client.
type remover interface {
	Delete(ctx context.Context, container, key string) error
}

// OrphanHandler handles Kafka messages describing objects left without
// metadata and removes them from the store.
type OrphanHandler struct {
	store      remover
	containers map[string]bool
}

// NewOrphanHandler creates a handler allowed to clean up the given containers.
func NewOrphanHandler(store remover, containers []string) *OrphanHandler {
	allowed := make(map[string]bool, len(containers))
	for _, c := range containers {
		allowed[c] = true
	}

	return &OrphanHandler{store: store, containers: allowed}
}

// Handle decodes the orphan event and deletes the object. Events for unknown
// containers are dropped so a malformed message cannot remove foreign data.
func (h *OrphanHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var o model.Orphan
	if err := json.Unmarshal(msg.Value, &o); err != nil {
		zlog.Logger.Err(err).Msg("dropping undecodable orphan message")
		return nil
	}

	if o.Key == "" || !h.containers[o.Container] {
		zlog.Logger.Warn().
			Str("container", o.Container).
			Str("key", o.Key).
			Msg("dropping orphan message for unknown container")
		return nil
	}

	if err := h.store.Delete(ctx, o.Container, o.Key); err != nil {
		return fmt.Errorf("delete orphan %s/%s: %w", o.Container, o.Key, err)
	}

	zlog.Logger.Info().
		Str("container", o.Container).
		Str("key", o.Key).
		Str("reason", o.Reason).
		Msg("orphaned object removed")

	return nil
}

package devbackend

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/telestore/telestore/internal/bridge"
)

const (
	simulatedFileSize = 4 << 20
	simulatedChunks   = 2
	progressSteps     = 4
)

func (b *Backend) pickAndUpload() (bridge.UploadAck, error) {
	b.mu.Lock()
	if !b.authenticated {
		b.mu.Unlock()
		return bridge.UploadAck{}, errNotAuthorized
	}
	b.uploads++
	name := fmt.Sprintf("upload-%d.bin", b.uploads)
	b.mu.Unlock()

	id := uuid.NewString()
	file := bridge.FileMetadata{
		ID:       id,
		Name:     name,
		Size:     simulatedFileSize,
		MimeType: "application/octet-stream",
	}
	for i := 0; i < simulatedChunks; i++ {
		file.Chunks = append(file.Chunks, bridge.FileChunk{Index: i, Size: simulatedFileSize / simulatedChunks})
	}

	b.simulate(bridge.DirectionUpload, id, func() {
		b.mu.Lock()
		b.files = append(b.files, file)
		b.mu.Unlock()
	})
	return bridge.UploadAck{Status: bridge.UploadStarted, File: name}, nil
}

func (b *Backend) downloadFile(id string) (bridge.DownloadAck, error) {
	b.mu.Lock()
	found := b.findLocked(id) >= 0
	b.mu.Unlock()
	if !found {
		return bridge.DownloadAck{}, errFileNotFound
	}

	b.simulate(bridge.DirectionDownload, id, nil)
	return bridge.DownloadAck{Status: "started"}, nil
}

// simulate pushes progress for id every step and completes it, running done
// just before the completion notification.
func (b *Backend) simulate(dir bridge.Direction, id string, done func()) {
	progressName, completeName := bridge.NotifyUploadProgress, bridge.NotifyUploadComplete
	if dir == bridge.DirectionDownload {
		progressName, completeName = bridge.NotifyDownloadProgress, bridge.NotifyDownloadComplete
	}
	speed := humanize.Bytes(uint64(simulatedFileSize/progressSteps)) + "/s"

	b.transfers.Add(1)
	go func() {
		defer b.transfers.Done()
		for i := 0; i <= progressSteps; i++ {
			if i > 0 {
				select {
				case <-b.ctx.Done():
					return
				case <-b.clock.After(b.step):
				}
			}
			b.push(progressName, id, i*100/progressSteps, speed)
		}
		if done != nil {
			done()
		}
		b.push(completeName, id)
	}()
}

func (b *Backend) push(name string, args ...any) {
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()
	if out == nil {
		return
	}
	if err := out.Broadcast(name, args...); err != nil {
		b.logger.Warn().Err(err).Str("notification", name).Msg("Broadcast failed")
	}
}

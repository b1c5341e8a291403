package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"nesram/process"
	"nesram/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"

	// regions above this are listed in the map but their contents are not saved
	maxSavedRegion = 100 * 1024 * 1024
)

// Metadata is the contents of metadata.json.
type Metadata struct {
	PID       process.ProcessID `json:"pid"`
	Name      string            `json:"name"`
	StartTime int64             `json:"start_time,omitempty"`
}

// SaveStats counts what Save did with each region.
type SaveStats struct {
	Saved       int
	NotReadable int
	TooLarge    int
	Filtered    int
	ReadErrors  int
}

func dumpLogger() *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dump"))
}

func blobName(item memory_map.MemoryMapItem) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", item.Address, item.Size)
}

// Save writes proc's memory map and the contents of every readable region
// accepted by keep (nil keeps all) to dirname.
func Save(proc process.Process, meta Metadata, dirname string, keep func(memory_map.MemoryMapItem) bool) (SaveStats, error) {
	var stats SaveStats
	dumpLog := dumpLogger()

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	dumpLog.Infoln("Saving process", meta.PID, "to directory:", dirname)

	metadataJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadataJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write metadata file: %w", err)
	}

	if err := proc.UpdateMemoryMap(); err != nil {
		return stats, fmt.Errorf("failed to update memory map: %w", err)
	}
	mm, err := proc.GetMemoryMap()
	if err != nil {
		return stats, fmt.Errorf("failed to get memory map: %w", err)
	}

	memoryMapJSON, err := json.MarshalIndent(mm, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, memoryMapFile), memoryMapJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write memory map file: %w", err)
	}

	for _, item := range mm {
		switch {
		case !item.IsReadable():
			stats.NotReadable++
			continue
		case item.Size > maxSavedRegion:
			dumpLog.Debugln("Skipping large region at", fmt.Sprintf("%x", item.Address), "(size:", item.Size/1024/1024, "MB)")
			stats.TooLarge++
			continue
		case keep != nil && !keep(item):
			stats.Filtered++
			continue
		}

		data, err := proc.ReadMemory(process.ProcessMemoryAddress(item.Address), process.ProcessMemorySize(item.Size))
		if err != nil {
			dumpLog.Debugln("Failed to read memory region at", fmt.Sprintf("%x", item.Address), ":", err)
			stats.ReadErrors++
			continue
		}

		if err := os.WriteFile(filepath.Join(dirname, blobName(item)), data, 0644); err != nil {
			return stats, fmt.Errorf("failed to write blob for region %x: %w", item.Address, err)
		}
		stats.Saved++
	}

	dumpLog.Infoln("Process dump saved:", stats.Saved, "regions saved,", stats.ReadErrors, "read errors")

	return stats, nil
}

// Load reads a dump written by Save. Regions whose blob is missing are mapped
// without data.
func Load(dirname string) (*ProcessImage, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(metadataBytes, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, memoryMapFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}

	sort.Slice(mm, func(i, j int) bool {
		return mm[i].Address < mm[j].Address
	})

	image := NewProcessImage(meta.PID, meta.Name, meta.StartTime)
	loaded := 0
	for _, item := range mm {
		data, err := os.ReadFile(filepath.Join(dirname, blobName(item)))
		if errors.Is(err, fs.ErrNotExist) {
			image.AddUncaptured(item)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blob %s: %w", blobName(item), err)
		}
		image.AddRegion(item, data)
		loaded++
	}

	dumpLogger().Infoln("Loaded dump of", meta.Name, "pid", meta.PID, ":", len(mm), "regions,", loaded, "with data")

	return image, nil
}

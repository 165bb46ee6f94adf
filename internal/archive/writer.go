package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coffersTech/logvault/internal/model"
	"github.com/klauspost/compress/zstd"
)

// MagicHeader opens every snapshot file.
var MagicHeader = []byte("LOGVLT01")

// footerSize is RowCount(4) + MinTs(8) + MaxTs(8).
const footerSize = 20

// Writer encodes record sets into compressed snapshot files.
type Writer struct {
	encoder *zstd.Encoder
}

func NewWriter() (*Writer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &Writer{encoder: enc}, nil
}

// WriteSnapshot writes records to filename.
//
// Layout: Header | CompressedLen uint32 | zstd(JSON array) | Footer
// The footer carries the row count and the min/max timestamp in unix milliseconds,
// so a reader can skip a file by time range without decompressing it.
func (w *Writer) WriteSnapshot(filename string, records []model.LogRecord) error {
	if records == nil {
		records = []model.LogRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	compressed := w.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if err := writeBody(bw, compressed, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}

func writeBody(bw *bufio.Writer, compressed []byte, records []model.LogRecord) error {
	if _, err := bw.Write(MagicHeader); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := bw.Write(compressed); err != nil {
		return err
	}

	minTs, maxTs := timeRange(records)
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(records))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, minTs); err != nil {
		return err
	}
	return binary.Write(bw, binary.LittleEndian, maxTs)
}

// timeRange scans every record since the file is not kept in timestamp order.
func timeRange(records []model.LogRecord) (minTs, maxTs int64) {
	for i, r := range records {
		ts := r.Timestamp.UnixMilli()
		if i == 0 || ts < minTs {
			minTs = ts
		}
		if i == 0 || ts > maxTs {
			maxTs = ts
		}
	}
	return minTs, maxTs
}

package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coffersTech/logvault/internal/model"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHeader = errors.New("invalid snapshot header")
	ErrCorrupt       = errors.New("corrupt snapshot")
)

// Footer is the fixed-size trailer of a snapshot.
type Footer struct {
	Count int
	MinTs time.Time
	MaxTs time.Time
}

type Reader struct {
	decoder *zstd.Decoder
}

func NewReader() (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Reader{decoder: dec}, nil
}

// ReadFooter returns the trailer of filename without decompressing the body.
func (r *Reader) ReadFooter(filename string) (Footer, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Footer{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Footer{}, err
	}
	if err := checkHeader(f); err != nil {
		return Footer{}, err
	}
	if info.Size() < int64(len(MagicHeader))+4+footerSize {
		return Footer{}, fmt.Errorf("%w: file too small", ErrCorrupt)
	}

	buf := make([]byte, footerSize)
	if _, err := f.ReadAt(buf, info.Size()-footerSize); err != nil {
		return Footer{}, err
	}
	return decodeFooter(buf), nil
}

// ReadSnapshot decodes every record stored in filename.
func (r *Reader) ReadSnapshot(filename string) ([]model.LogRecord, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	br := bytes.NewReader(data)
	if err := checkHeader(br); err != nil {
		return nil, err
	}

	var size uint32
	if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if int64(size)+footerSize != int64(br.Len()) {
		return nil, fmt.Errorf("%w: body length %d does not match file size", ErrCorrupt, size)
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(br, compressed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, err := r.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	records := []model.LogRecord{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	footer := decodeFooter(data[len(data)-footerSize:])
	if footer.Count != len(records) {
		return nil, fmt.Errorf("%w: footer says %d records, body has %d", ErrCorrupt, footer.Count, len(records))
	}
	return records, nil
}

func checkHeader(rd io.Reader) error {
	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(rd, header); err != nil {
		return ErrInvalidHeader
	}
	if !bytes.Equal(header, MagicHeader) {
		return ErrInvalidHeader
	}
	return nil
}

func decodeFooter(b []byte) Footer {
	return Footer{
		Count: int(binary.LittleEndian.Uint32(b[0:4])),
		MinTs: time.UnixMilli(int64(binary.LittleEndian.Uint64(b[4:12]))).UTC(),
		MaxTs: time.UnixMilli(int64(binary.LittleEndian.Uint64(b[12:20]))).UTC(),
	}
}

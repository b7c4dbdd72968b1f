package geoid

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/geomeasure/internal/monitoring"
)

// Metadata describes a raw float32 grid file. It is usually stored as a JSON
// sidecar next to the grid.
type Metadata struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Bounds
	NoData    float32 `json:"no_data"`
	ByteOrder string  `json:"byte_order,omitempty"` // "little" (default) or "big"
	// TopDown is set when the first row of the file is the MaxLat edge, as
	// in GeoTIFF exports. Rows are flipped on load so row 0 is MinLat.
	TopDown bool `json:"top_down,omitempty"`
}

// EHT2014Metadata describes the EHT2014 grid export used in the field.
func EHT2014Metadata() Metadata {
	return Metadata{
		Width:  268,
		Height: 186,
		Bounds: EHT2014Bounds,
		NoData: DefaultNoData,
	}
}

func (md Metadata) byteOrder() (binary.ByteOrder, error) {
	switch strings.ToLower(md.ByteOrder) {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unsupported byte order %q", md.ByteOrder)
	}
}

// maxMetadataSize caps the sidecar file size.
const maxMetadataSize = 64 * 1024

// ReadMetadata loads a JSON metadata sidecar.
func ReadMetadata(path string) (Metadata, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Metadata{}, fmt.Errorf("geoid metadata must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to stat geoid metadata: %w", err)
	}
	if info.Size() > maxMetadataSize {
		return Metadata{}, fmt.Errorf("geoid metadata too large: %d bytes (max %d)", info.Size(), maxMetadataSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read geoid metadata: %w", err)
	}
	md := Metadata{NoData: DefaultNoData}
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse geoid metadata: %w", err)
	}
	return md, nil
}

// ReadRaw decodes width*height float32 values from r.
func ReadRaw(r io.Reader, md Metadata) ([]float32, error) {
	if md.Width < 1 || md.Height < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrGridSize, md.Width, md.Height)
	}
	order, err := md.byteOrder()
	if err != nil {
		return nil, err
	}

	n := md.Width * md.Height
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: short grid data for %dx%d", ErrGridSize, md.Width, md.Height)
		}
		return nil, fmt.Errorf("failed to read grid data: %w", err)
	}

	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(order.Uint32(buf[4*i:]))
	}
	if md.TopDown {
		flipRows(values, md.Width, md.Height)
	}
	return values, nil
}

func flipRows(values []float32, width, height int) {
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := values[top*width : (top+1)*width]
		b := values[bottom*width : (bottom+1)*width]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
}

// WriteRaw encodes values in the layout ReadRaw expects. Used by tooling that
// converts third-party grids.
func WriteRaw(w io.Writer, values []float32, md Metadata) error {
	order, err := md.byteOrder()
	if err != nil {
		return err
	}
	if len(values) != md.Width*md.Height {
		return fmt.Errorf("%w: %d values for %dx%d", ErrGridSize, len(values), md.Width, md.Height)
	}
	bw := bufio.NewWriter(w)
	var b [4]byte
	for _, v := range values {
		order.PutUint32(b[:], math.Float32bits(v))
		if _, err := bw.Write(b[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadFiles reads the metadata sidecar at metaPath and then the grid at
// gridPath. Failures behave as in LoadFile.
func LoadFiles(gridPath, metaPath string) (*Model, error) {
	md, err := ReadMetadata(metaPath)
	if err != nil {
		monitoring.Logf("geoid: metadata %s not loaded, using fallback undulation %.1f m: %v", metaPath, FallbackUndulation, err)
		return Unloaded(), err
	}
	return LoadFile(gridPath, md)
}

// LoadFile reads a raw grid from gridPath described by md. Any failure is
// logged and yields an unloaded model together with the error, so callers
// may carry on in fallback-only mode.
func LoadFile(gridPath string, md Metadata) (*Model, error) {
	m, err := loadFile(gridPath, md)
	if err != nil {
		monitoring.Logf("geoid: grid %s not loaded, using fallback undulation %.1f m: %v", gridPath, FallbackUndulation, err)
		return Unloaded(), err
	}
	w, h := m.Size()
	monitoring.Logf("geoid: loaded %dx%d grid from %s covering %+v", w, h, gridPath, m.Bounds())
	return m, nil
}

func loadFile(gridPath string, md Metadata) (*Model, error) {
	f, err := os.Open(filepath.Clean(gridPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open geoid grid: %w", err)
	}
	defer f.Close()

	values, err := ReadRaw(bufio.NewReader(f), md)
	if err != nil {
		return nil, err
	}
	return Load(values, md.Width, md.Height, md.Bounds, md.NoData)
}

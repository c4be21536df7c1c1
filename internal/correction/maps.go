// Package correction maintains the shared dark-map and defect-map registry
// used to radiometrically correct raw detector frames, and persists both to
// 16-bit grayscale TIFFs on disk. The registry is an init-then-serve store
// behind a couple of narrow mutexes rather than one big lock, so dark-map
// and defect-map reads never block on each other.
package correction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"xraycore/internal/imaging"
)

var (
	ErrNotFound = errors.New("correction: map not found")
)

var darkMapFileRe = regexp.MustCompile(`^DarkMap_(\d+)ms\.tif$`)

// Maps holds the process's dark-map table and defect map.
type Maps struct {
	darkMu   sync.RWMutex
	dark     map[int]*imaging.RawImage

	defectMu sync.RWMutex
	defect   *imaging.RawImage

	darkMapDir   string
	defectMapDir string
}

// New constructs an empty registry rooted at baseDir (baseDir/DarkMaps and
// baseDir/DefectMap), matching the <AppLocalData>/{DarkMaps,DefectMap}
// on-disk layout.
func New(baseDir string) *Maps {
	return &Maps{
		dark:         make(map[int]*imaging.RawImage),
		darkMapDir:   filepath.Join(baseDir, "DarkMaps"),
		defectMapDir: filepath.Join(baseDir, "DefectMap"),
	}
}

// DarkMapDir returns the directory dark maps are persisted under.
func (m *Maps) DarkMapDir() string { return m.darkMapDir }

// DefectMapDir returns the directory the defect map (and its inputs) are
// persisted under.
func (m *Maps) DefectMapDir() string { return m.defectMapDir }

// LoadFromDisk populates the registry from whatever dark/defect TIFFs
// already exist under the configured directories. It is safe to call once
// at startup; missing directories are treated as "nothing calibrated yet".
func (m *Maps) LoadFromDisk() error {
	if err := m.loadDarkMaps(); err != nil {
		return err
	}
	return m.loadDefectMap()
}

func (m *Maps) loadDarkMaps() error {
	entries, err := os.ReadDir(m.darkMapDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("correction: reading dark map directory: %w", err)
	}

	m.darkMu.Lock()
	defer m.darkMu.Unlock()
	for _, e := range entries {
		match := darkMapFileRe.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		exp, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		img, err := DecodeFile(filepath.Join(m.darkMapDir, e.Name()))
		if err != nil {
			return fmt.Errorf("correction: loading %s: %w", e.Name(), err)
		}
		m.dark[exp] = img
	}
	return nil
}

func (m *Maps) loadDefectMap() error {
	path := filepath.Join(m.defectMapDir, "GlobalDefectMap.tif")
	img, err := DecodeFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("correction: loading defect map: %w", err)
	}
	m.defectMu.Lock()
	m.defect = img
	m.defectMu.Unlock()
	return nil
}

// HasDark reports whether a dark map exists for exp (milliseconds).
func (m *Maps) HasDark(exp int) bool {
	m.darkMu.RLock()
	defer m.darkMu.RUnlock()
	_, ok := m.dark[exp]
	return ok
}

// HasDefect reports whether a defect map has been calibrated.
func (m *Maps) HasDefect() bool {
	m.defectMu.RLock()
	defer m.defectMu.RUnlock()
	return m.defect != nil
}

// DarkExposureTimes returns the sorted set of exposure times with a dark
// map present, for CaptureManagerEvent's status payload.
func (m *Maps) DarkExposureTimes() []int {
	m.darkMu.RLock()
	defer m.darkMu.RUnlock()
	out := make([]int, 0, len(m.dark))
	for exp := range m.dark {
		out = append(out, exp)
	}
	sort.Ints(out)
	return out
}

// DarkCorrect returns a new image with the dark offset applied: pixel -
// dark[exp] + DarkOffset, clamped to [0, MaxPixelValue].
func (m *Maps) DarkCorrect(img *imaging.RawImage, exp int) (*imaging.RawImage, error) {
	m.darkMu.RLock()
	dark, ok := m.dark[exp]
	m.darkMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !img.SameDimensions(dark) {
		return nil, fmt.Errorf("correction: dark map dimension mismatch for %dms", exp)
	}

	out := imaging.NewRawImage(img.Width, img.Height)
	for i, v := range img.Pix {
		corrected := int(v) - int(dark.Pix[i]) + imaging.DarkOffset
		if corrected < 0 {
			corrected = 0
		}
		if corrected > imaging.MaxPixelValue {
			corrected = imaging.MaxPixelValue
		}
		out.Pix[i] = uint16(corrected)
	}
	return out, nil
}

// DefectCorrect returns a new image with defective pixels replaced by the
// mean of their non-defective 4-connected neighbors. Pixels at value 0 in
// the defect map are considered defective.
func (m *Maps) DefectCorrect(img *imaging.RawImage) (*imaging.RawImage, error) {
	m.defectMu.RLock()
	defect := m.defect
	m.defectMu.RUnlock()
	if defect == nil {
		return nil, ErrNotFound
	}
	if !img.SameDimensions(defect) {
		return nil, fmt.Errorf("correction: defect map dimension mismatch")
	}

	out := img.Clone()
	w, h := img.Width, img.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if defect.At(x, y) != 0 {
				continue
			}
			sum, n := 0, 0
			for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				if defect.At(nx, ny) == 0 {
					continue
				}
				sum += int(img.At(nx, ny))
				n++
			}
			if n > 0 {
				out.Set(x, y, uint16(sum/n))
			}
		}
	}
	return out, nil
}

// SetDark installs a newly calibrated dark map and persists it to disk.
func (m *Maps) SetDark(exp int, img *imaging.RawImage) error {
	if err := os.MkdirAll(m.darkMapDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.darkMapDir, fmt.Sprintf("DarkMap_%dms.tif", exp))
	if err := EncodeFile(path, img); err != nil {
		return err
	}
	m.darkMu.Lock()
	m.dark[exp] = img
	m.darkMu.Unlock()
	return nil
}

// SetDefect installs a newly calibrated defect map and persists it to disk.
func (m *Maps) SetDefect(img *imaging.RawImage) error {
	if err := os.MkdirAll(m.defectMapDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.defectMapDir, "GlobalDefectMap.tif")
	if err := EncodeFile(path, img); err != nil {
		return err
	}
	m.defectMu.Lock()
	m.defect = img
	m.defectMu.Unlock()
	return nil
}

// StageFilePath returns the path DefectMapCapture writes its averaged,
// per-(exposure,full-well) intermediate frames to.
func (m *Maps) StageFilePath(exp int, fw imaging.FullWell) string {
	return filepath.Join(m.defectMapDir, fmt.Sprintf("1510HS_1510_%d_Dark%s_Mean.tif", exp, fw))
}

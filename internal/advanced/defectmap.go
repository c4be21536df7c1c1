package advanced

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"

	"xraycore/internal/controller"
	"xraycore/internal/correction"
	"xraycore/internal/imaging"
)

// DefectMapGenPath is the external tool DefectMap invokes after writing its
// per-(exposure, full-well) averaged calibration frames. Overridable for
// tests.
var DefectMapGenPath = "DefectMapGen"

// DefectMap captures uncorrected frames at each (exposure, full-well)
// combination, averages them to per-stage TIFFs, then hands those off to
// the external DefectMapGen tool to synthesize a fresh global defect map.
type DefectMap struct {
	ExposureTimesMS  []int
	FramesPerCapture int
	Logger           *log.Logger
}

func (d *DefectMap) Name() string { return "DefectMap" }

func (d *DefectMap) Run(ctx context.Context, ctrl *controller.Controller, maps *correction.Maps, out chan<- CaptureItem) {
	defer close(out)

	fullWells := []imaging.FullWell{imaging.FullWellHigh, imaging.FullWellLow}
	total := len(d.ExposureTimesMS) * len(fullWells)
	step := 0

	for _, exp := range d.ExposureTimesMS {
		for _, fw := range fullWells {
			select {
			case <-ctx.Done():
				return
			default:
			}

			step++
			if !emitProgress(ctx, out, fmt.Sprintf("Capturing %s frames at %dms", fw, exp), step, total) {
				return
			}

			stack := imaging.NewFrameStack(d.FramesPerCapture)
			err := runSequenceStage(ctx, ctrl, maps, d.Logger, exp, d.FramesPerCapture, fw, false, func(frame *imaging.RawImage) {
				if err := stack.Push(frame); err != nil {
					d.Logger.Printf("[advanced:defectmap] %v", err)
					return
				}
				emitImage(ctx, out, frame, imaging.ImageMetadata{})
			})
			if err != nil {
				d.Logger.Printf("[advanced:defectmap] stage at %dms/%s failed: %v", exp, fw, err)
				return
			}

			mean, err := stack.Mean()
			if err != nil {
				d.Logger.Printf("[advanced:defectmap] reducing stack at %dms/%s failed: %v", exp, fw, err)
				return
			}
			if err := correction.EncodeFile(maps.StageFilePath(exp, fw), mean); err != nil {
				d.Logger.Printf("[advanced:defectmap] writing stage file failed: %v", err)
				return
			}
		}
	}

	if err := d.generateDefectMap(ctx, maps); err != nil {
		d.Logger.Printf("[advanced:defectmap] DefectMapGen failed: %v", err)
		emitResult(ctx, out, nil)
		return
	}

	defectImg, err := correction.DecodeFile(maps.DefectMapDir() + "/GlobalDefectMap.tif")
	if err != nil {
		d.Logger.Printf("[advanced:defectmap] loading generated defect map failed: %v", err)
		emitResult(ctx, out, nil)
		return
	}
	if err := maps.SetDefect(defectImg); err != nil {
		d.Logger.Printf("[advanced:defectmap] installing generated defect map failed: %v", err)
		emitResult(ctx, out, nil)
		return
	}

	emitResult(ctx, out, []*imaging.RawImage{defectImg})
}

func (d *DefectMap) generateDefectMap(ctx context.Context, maps *correction.Maps) error {
	cmd := exec.CommandContext(ctx, DefectMapGenPath, maps.DefectMapDir(), "1", "0", "-f", "-a", "-p")
	configureNoConsoleWindow(cmd)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("defectmapgen: %w (%s)", err, output)
	}
	return nil
}

// configureNoConsoleWindow prevents the spawned tool from flashing a
// console window on Windows; it is a no-op on every other platform.
func configureNoConsoleWindow(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		setWindowsNoConsole(cmd)
	}
}

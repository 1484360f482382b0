package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/viert/go-lame"

	"chatmedia/internal/logging"
	"chatmedia/internal/metrics"
)

var (
	// ErrDecodeFailed indicates the external speech decoder failed or produced no PCM.
	ErrDecodeFailed = errors.New("speech decode failed")
	// ErrEncodeFailed indicates MP3 encoding produced no output.
	ErrEncodeFailed = errors.New("mp3 encode failed")
)

const (
	// TargetSampleRate is the PCM sample rate requested from the decoder.
	TargetSampleRate = 24000

	// mp3Bitrate is the target bitrate in kbit/s for mono voice notes.
	mp3Bitrate = 32

	decodeTimeout     = 45 * time.Second
	encodeTimeout     = 90 * time.Second
	heartbeatInterval = 5 * time.Second

	// pcmChunkSize is the streaming chunk for the encoder: 200 ms of
	// 24 kHz mono s16le, even so chunks never split a sample.
	pcmChunkSize = 9600
)

// Progress is a heartbeat event surfaced to the caller while a slow
// stage is running.
type Progress struct {
	Stage   string
	Current int64
	Total   int64
	Detail  string
}

// Task describes one voice transcode: fetch the raw speech-codec blob,
// decode it to PCM via the external decoder, encode the PCM to MP3 at
// OutputPath.
type Task struct {
	// Key names the task for logging and temp file naming.
	Key string
	// Fetch returns the raw speech-codec payload.
	Fetch func(ctx context.Context) ([]byte, error)
	// OutputPath is where the finished MP3 is written.
	OutputPath string
	// OnProgress, if set, receives stage transitions and encode heartbeats.
	OnProgress func(Progress)
}

// Transcoder converts proprietary speech-codec blobs into playable MP3
// files. Decoding runs in an external subprocess; encoding runs
// in-process through libmp3lame.
type Transcoder struct {
	decoderPath string
	tempDir     string

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// New creates a Transcoder. decoderPath must point at the external
// speech decoder binary (see FindDecoder); tempDir holds intermediate
// blob and PCM files and must be writable.
func New(decoderPath, tempDir string) *Transcoder {
	return &Transcoder{
		decoderPath: decoderPath,
		tempDir:     tempDir,
		processes:   make(map[string]*exec.Cmd),
	}
}

// Run executes the task state machine: FetchBlob, DecodeToPcm,
// EncodeToMp3. Intermediate files are removed on success and failure.
func (t *Transcoder) Run(ctx context.Context, task Task) error {
	report := task.OnProgress
	if report == nil {
		report = func(Progress) {}
	}

	report(Progress{Stage: "fetch", Detail: task.Key})
	blob, err := task.Fetch(ctx)
	if err != nil {
		return err
	}

	rawPath := filepath.Join(t.tempDir, task.Key+".aud")
	pcmPath := filepath.Join(t.tempDir, task.Key+".pcm")
	defer func() {
		for _, p := range []string{rawPath, pcmPath} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logging.Warn("failed to remove temp file %s: %v", p, err)
			}
		}
	}()

	if err := os.WriteFile(rawPath, blob, 0644); err != nil {
		return fmt.Errorf("write raw blob: %w", err)
	}

	report(Progress{Stage: "decode", Detail: task.Key})
	if err := t.decodeToPcm(ctx, task.Key, rawPath, pcmPath); err != nil {
		metrics.TranscodeErrors.WithLabelValues("decode").Inc()
		return err
	}

	report(Progress{Stage: "encode", Detail: task.Key})
	if err := t.encodeToMp3(ctx, pcmPath, task.OutputPath, report); err != nil {
		metrics.TranscodeErrors.WithLabelValues("encode").Inc()
		// Never leave a half-written output behind.
		if rmErr := os.Remove(task.OutputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove partial output %s: %v", task.OutputPath, rmErr)
		}
		return err
	}

	report(Progress{Stage: "done", Detail: task.Key})
	return nil
}

// decodeToPcm invokes the external decoder subprocess with the fixed
// target sample rate. The stage is bounded by decodeTimeout.
func (t *Transcoder) decodeToPcm(ctx context.Context, key, rawPath, pcmPath string) error {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, decodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(stageCtx, t.decoderPath,
		rawPath,
		pcmPath,
		"-Fs_API", fmt.Sprintf("%d", TargetSampleRate),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.processMu.Lock()
	t.processes[key] = cmd
	t.processMu.Unlock()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, key)
		t.processMu.Unlock()
	}()

	err := cmd.Run()
	metrics.TranscodeStageDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	if stageCtx.Err() != nil {
		return fmt.Errorf("decoder timed out after %v: %w", decodeTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		logging.Error("decoder stderr: %s", stderr.String())
		return fmt.Errorf("%w: decoder exited: %v", ErrDecodeFailed, err)
	}

	info, err := os.Stat(pcmPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: decoder produced no PCM output", ErrDecodeFailed)
	}

	return nil
}

// encodeToMp3 streams PCM into the in-process lame encoder in aligned
// chunks, flushing a final frame at end of stream. Heartbeat progress
// fires every heartbeatInterval; the stage is bounded by encodeTimeout.
func (t *Transcoder) encodeToMp3(ctx context.Context, pcmPath, outPath string, report func(Progress)) error {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	pcm, err := os.Open(pcmPath)
	if err != nil {
		return fmt.Errorf("%w: open pcm: %v", ErrEncodeFailed, err)
	}
	defer func() {
		if err := pcm.Close(); err != nil {
			logging.Warn("failed to close pcm file %s: %v", pcmPath, err)
		}
	}()

	total := int64(0)
	if info, err := pcm.Stat(); err == nil {
		total = info.Size()
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output %s: %w", outPath, err)
	}

	enc := lame.NewEncoder(out)
	if err := enc.SetNumChannels(1); err != nil {
		closeQuietly(out, outPath)
		return fmt.Errorf("%w: set channels: %v", ErrEncodeFailed, err)
	}
	if err := enc.SetInSamplerate(TargetSampleRate); err != nil {
		closeQuietly(out, outPath)
		return fmt.Errorf("%w: set sample rate: %v", ErrEncodeFailed, err)
	}
	if err := enc.SetBrate(mp3Bitrate); err != nil {
		closeQuietly(out, outPath)
		return fmt.Errorf("%w: set bitrate: %v", ErrEncodeFailed, err)
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var written int64
	buf := make([]byte, pcmChunkSize)

	for {
		select {
		case <-stageCtx.Done():
			enc.Close()
			closeQuietly(out, outPath)
			return fmt.Errorf("encode timed out after %v: %w", encodeTimeout, context.DeadlineExceeded)
		case <-heartbeat.C:
			report(Progress{Stage: "encode", Current: written, Total: total})
		default:
		}

		n, readErr := io.ReadFull(pcm, buf)
		if n > 0 {
			if _, err := enc.Write(buf[:n]); err != nil {
				enc.Close()
				closeQuietly(out, outPath)
				return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
			}
			written += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			enc.Close()
			closeQuietly(out, outPath)
			return fmt.Errorf("%w: read pcm: %v", ErrEncodeFailed, readErr)
		}
	}

	// Flush the final MP3 frame.
	enc.Close()
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output %s: %w", outPath, err)
	}

	metrics.TranscodeStageDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: no output bytes produced", ErrEncodeFailed)
	}

	return nil
}

func closeQuietly(f *os.File, path string) {
	if err := f.Close(); err != nil {
		logging.Warn("failed to close %s: %v", path, err)
	}
}

// Cleanup kills any decoder subprocesses still running. Called on
// shutdown.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for key, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing decoder process for: %s", key)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill decoder process for %s: %v", key, err)
			}
		}
	}
}

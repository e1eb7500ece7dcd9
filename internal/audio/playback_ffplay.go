package audio

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// FFplayPlayer plays raw PCM fragments through an ffplay subprocess.
// Each fragment gets its own process; ffplay exits on its own once the
// piped audio finishes, which is what makes Play block until natural
// completion.
type FFplayPlayer struct {
	command    string
	sampleRate int

	mu      sync.Mutex
	current *os.Process
}

// NewFFplayPlayer creates a player shelling out to ffplay.
func NewFFplayPlayer(command string, sampleRate int) *FFplayPlayer {
	if command == "" {
		command = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &FFplayPlayer{
		command:    command,
		sampleRate: sampleRate,
	}
}

// Play writes the fragment to ffplay's stdin and waits for it to drain
// the audio device. Returns once the fragment finished or was stopped.
func (p *FFplayPlayer) Play(pcm []byte) error {
	cmd := exec.Command(p.command,
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-autoexit",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", "mono",
		"-ar", strconv.Itoa(p.sampleRate),
		"-i", "-",
	)
	cmd.Stdin = bytes.NewReader(pcm)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	p.mu.Lock()
	p.current = cmd.Process
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	if p.current == cmd.Process {
		p.current = nil
	}
	p.mu.Unlock()

	if err != nil {
		// A killed process is an interrupt, not a playback failure.
		if cmd.ProcessState != nil && !cmd.ProcessState.Exited() {
			return nil
		}
		return fmt.Errorf("ffplay: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// Stop kills the in-flight fragment, if any.
func (p *FFplayPlayer) Stop() {
	p.mu.Lock()
	proc := p.current
	p.current = nil
	p.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
}

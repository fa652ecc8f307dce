package lifecycle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptChoice is what the operator picked at the no-embedder prompt.
type PromptChoice int

const (
	// ChoiceShowInstall prints install instructions, then the caller
	// retries.
	ChoiceShowInstall PromptChoice = iota + 1
	// ChoiceOfflineMode proceeds with keyword-only search.
	ChoiceOfflineMode
	// ChoiceCancel aborts.
	ChoiceCancel
)

// IsTTY reports whether stdin is a terminal: prompts only make sense
// when a human is on the other end.
func IsTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// readChoice reads one line, applying def when the operator just hits
// enter.
func readChoice(r io.Reader, def string) (string, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		input = def
	}
	return input, nil
}

// PromptNoEmbedder asks what to do when Ollama isn't installed: show
// instructions, continue without semantic search, or stop.
func PromptNoEmbedder(w io.Writer, r io.Reader) (PromptChoice, error) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Ollama is required for semantic search but not installed.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  [1] Show install instructions (then retry)")
	fmt.Fprintln(w, "  [2] Use offline mode (BM25-only, no semantic search)")
	fmt.Fprintln(w, "  [3] Cancel")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, "Choice [1]: ")

	input, err := readChoice(r, "1")
	if err != nil {
		return ChoiceCancel, err
	}
	switch input {
	case "1":
		return ChoiceShowInstall, nil
	case "2":
		return ChoiceOfflineMode, nil
	case "3":
		return ChoiceCancel, nil
	default:
		return ChoiceCancel, fmt.Errorf("invalid choice: %s", input)
	}
}

// ShowInstallInstructions prints the platform's install steps.
func ShowInstallInstructions(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, InstallInstructions())
	fmt.Fprintln(w, "")
}

// PromptModelNotFound asks whether to pull a missing embedding model
// now; true means pull.
func PromptModelNotFound(w io.Writer, r io.Reader, model string) (bool, error) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Embedding model '%s' is not installed.\n", model)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  [1] Pull model now (recommended)")
	fmt.Fprintln(w, "  [2] Cancel")
	fmt.Fprintln(w, "")
	fmt.Fprint(w, "Choice [1]: ")

	input, err := readChoice(r, "1")
	if err != nil {
		return false, err
	}
	return input == "1", nil
}

// ProgressBar is the minimal carriage-return bar used for model pulls,
// where the richer ui package would drag TUI dependencies into
// first-run setup.
type ProgressBar struct {
	w       io.Writer
	width   int
	current float64
	message string
}

// NewProgressBar builds a bar width cells wide (40 when <= 0).
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 40
	}
	return &ProgressBar{w: w, width: width}
}

// Update redraws the bar in place at percent with message alongside.
func (p *ProgressBar) Update(percent float64, message string) {
	p.current = percent
	p.message = message

	filled := int(percent / 100 * float64(p.width))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w, "\r[%s] %.0f%% %s", bar, percent, message)
}

// Finish terminates the bar's line.
func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.w)
}

// FormatBytes renders a byte count at its natural magnitude.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// CreatePullProgressFunc adapts a ProgressBar into the PullProgress
// callback PullModel wants: a bar once sizes are known, status lines
// before that.
func CreatePullProgressFunc(w io.Writer) func(PullProgress) {
	bar := NewProgressBar(w, 40)
	lastStatus := ""

	return func(p PullProgress) {
		if p.Total > 0 {
			bar.Update(p.Percent, fmt.Sprintf("%s/%s", FormatBytes(p.Completed), FormatBytes(p.Total)))
		} else if p.Status != lastStatus {
			lastStatus = p.Status
			fmt.Fprintf(w, "\r%s...", p.Status)
		}
	}
}

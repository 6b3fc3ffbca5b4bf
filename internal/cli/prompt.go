package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptForFile asks for an image path on w and reads one line from r.
// Returns "" when nothing was entered.
func PromptForFile(r io.Reader, w io.Writer) string {
	fmt.Fprint(w, "Image file: ")

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && input == "" {
		return ""
	}
	return strings.TrimSpace(input)
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/eugenenazirov/trade-ledger/internal/currency"
)

// maxLineBytes bounds a single stdin line.
const maxLineBytes = 1 << 20

func main() {
	app := kingpin.New("tocurrency", "Formats numbers as currency amounts, e.g. 1234.5 -> 1 234,50")
	values := app.Arg("values", "Values to format; read one per line from stdin when omitted").Strings()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	app.FatalIfError(run(*values, os.Stdin, os.Stdout), "tocurrency")
}

// run formats each value on its own line. Values that are not numbers are
// written back unchanged.
func run(values []string, stdin io.Reader, stdout io.Writer) error {
	out := bufio.NewWriter(stdout)

	if len(values) > 0 {
		for _, v := range values {
			if _, err := fmt.Fprintln(out, formatLine(v)); err != nil {
				return err
			}
		}
		return out.Flush()
	}

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(out, formatLine(scanner.Text())); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return out.Flush()
}

func formatLine(raw string) string {
	d, ok := currency.Parse(raw)
	if !ok {
		return raw
	}
	return currency.FormatDecimal(d)
}

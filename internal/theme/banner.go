package theme

import (
	"fmt"
	"io"
)

// Banner returns the herald banner.
func Banner() string {
	const green = "\033[32m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	return "" +
		yellow + "   ☀  " + reset + green + "H E R A L D" + reset + yellow + "  ☀\n" + reset +
		green + "  ─────────────────────\n" + reset +
		"  mensajes, reacciones y pulso de la comunidad\n"
}

// PrintBanner writes the banner to w.
func PrintBanner(w io.Writer) {
	fmt.Fprint(w, Banner())
}

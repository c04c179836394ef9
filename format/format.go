// format.go - Zahlen- und Zeitformatierung fuer Reports
// Enthaelt: Millis, Count, Shape
package format

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Millis gibt eine Dauer als Millisekunden mit zwei Nachkommastellen aus
func Millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 2, 64)
}

// Count formatiert eine Element-Anzahl mit Tausender-Trennzeichen (150,528)
func Count[T ~int | ~int64 | ~uint64](n T) string {
	return printer.Sprintf("%d", n)
}

// Shape formatiert eine Dimensionsfolge als [1 224 224 3]
func Shape(shape []int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, d := range shape {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(d))
	}
	sb.WriteByte(']')
	return sb.String()
}

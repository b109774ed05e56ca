package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/and161185/clubpay/internal/model"
	"github.com/and161185/clubpay/internal/payment"
)

// formatPrice renders kopecks as rubles with grouped thousands: 150050 → "1 500.50 ₽".
func formatPrice(kopecks int64) string {
	sign := ""
	if kopecks < 0 {
		sign, kopecks = "-", -kopecks
	}
	rub := strconv.FormatInt(kopecks/100, 10)
	var b strings.Builder
	for i, r := range rub {
		if i > 0 && (len(rub)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if k := kopecks % 100; k != 0 {
		fmt.Fprintf(&b, ".%02d", k)
	}
	return sign + b.String() + " ₽"
}

// formatDuration renders minutes as "2 h 30 min".
func formatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%d min", m)
	case m == 0:
		return fmt.Sprintf("%d h", h)
	default:
		return fmt.Sprintf("%d h %d min", h, m)
	}
}

func packages(ts []model.Tariff) []model.Tariff {
	var out []model.Tariff
	for _, t := range ts {
		if t.Type == model.TariffPackage {
			out = append(out, t)
		}
	}
	return out
}

func printTariffs(w io.Writer, ts []model.Tariff, hourlyRate int64) {
	pkgs := packages(ts)
	if len(pkgs) == 0 {
		fmt.Fprintln(w, "No packages on sale.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tNAME\tTIME\tPRICE")
		for i, t := range pkgs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, t.Name, formatDuration(t.DurationMinutes), formatPrice(t.Price))
		}
		_ = tw.Flush()
	}
	fmt.Fprintf(w, "\nCustom time: %s per hour, 1 to %d hours (buy -hours N)\n", formatPrice(hourlyRate), payment.MaxCustomHours)
}

func printCode(w io.Writer, c model.ActivationCode) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Activation code: %s\n", color.New(color.Bold, color.FgGreen).Sprint(c.Code))
	fmt.Fprintf(w, "Time:            %s\n", formatDuration(c.DurationMinutes))
	fmt.Fprintf(w, "Valid until:     %s\n", c.ExpiresAt.Local().Format("02.01.2006 15:04"))
}

// termNotifier prints flow feedback in color.
type termNotifier struct {
	w io.Writer
}

var _ payment.Notifier = termNotifier{}

func newTermNotifier(w io.Writer) termNotifier { return termNotifier{w: w} }

func (n termNotifier) Notify(kind payment.Feedback, message string) {
	if message == "" {
		return
	}
	c := color.New(color.FgCyan)
	switch kind {
	case payment.FeedbackSuccess:
		c = color.New(color.FgGreen)
	case payment.FeedbackError:
		c = color.New(color.FgRed)
	}
	c.Fprintln(n.w, message)
}

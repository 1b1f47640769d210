package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"hostelpay/internal/checkout"
)

const hostedCheckoutURL = "https://checkout.paystack.com/"

// console plays the browser for the checkout flows: it shows notices,
// stands in for the payment widget and prints navigation targets.
type console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out}
}

func (c *console) Notify(level checkout.Level, message string) {
	c.printf("[%s] %s\n", strings.ToUpper(string(level)), message)
}

func (c *console) Navigate(path string) error {
	c.printf("Booking confirmed: %s\n", path)
	return nil
}

func (c *console) Redirect(url string) error {
	c.printf("Complete the payment at: %s\n", url)
	return nil
}

// ResumeTransaction asks the customer to pay on the hosted checkout page and
// to paste the transaction reference back. Answering "cancel" or closing the
// input cancels the payment.
func (c *console) ResumeTransaction(accessCode string, cb checkout.Callbacks) {
	c.printf("Open %s%s to pay.\n", hostedCheckoutURL, accessCode)
	c.printf("Enter the transaction reference when done, or \"cancel\": ")

	go func() {
		line, err := c.in.ReadString('\n')
		line = strings.TrimSpace(line)
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			cb.OnError(err)
		case strings.EqualFold(line, "cancel"), line == "" && err != nil:
			cb.OnCancel()
		default:
			cb.OnSuccess(line)
		}
	}()
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

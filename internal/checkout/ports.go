package checkout

// Level is the severity of a customer notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier shows short messages to the customer.
type Notifier interface {
	Notify(level Level, message string)
}

// Navigator moves the customer to another page.
type Navigator interface {
	// Navigate opens an in-app path such as the success page.
	Navigate(path string) error
	// Redirect leaves the app for an external URL.
	Redirect(url string) error
}

// Callbacks are wired into the payment widget. Exactly one is expected to
// fire per transaction; later calls are ignored.
type Callbacks struct {
	OnSuccess func(reference string)
	OnCancel  func()
	OnError   func(err error)
}

// Widget is the gateway's embedded payment popup.
type Widget interface {
	ResumeTransaction(accessCode string, callbacks Callbacks)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

package service

import (
	"log/slog"

	"github.com/ctlbridge/ctlbridge-go/pkg/commands"
	"github.com/ctlbridge/ctlbridge-go/pkg/controls"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/profile"
	"github.com/ctlbridge/ctlbridge-go/pkg/remote"
	"github.com/ctlbridge/ctlbridge-go/pkg/settings"
)

// FrontEnd is the user-facing layer.
type FrontEnd interface {
	// Confirm asks a yes/no question and blocks until answered.
	Confirm(title, question string) bool

	// Alert shows a message.
	Alert(msg string)

	// SaveProfile saves the active profile the way the user chooses.
	SaveProfile() error

	// Close releases the front end. It is called last during shutdown.
	Close() error
}

// FrontEndDeps is handed to the factory. The front end registers its
// callbacks against these before the factory returns.
type FrontEndDeps struct {
	Commands  *commands.Set
	Profile   *profile.Profile
	Profiles  *profile.Manager
	Settings  *settings.Manager
	Controls  *controls.Model
	RemoteOut *remote.Out
	Receiver  *device.Receiver
	Sender    *device.Sender
	Devices   *device.Registry

	// Translate localises user-facing text.
	Translate func(key string) string

	// PostUI runs fn on the UI dispatch loop.
	PostUI func(fn func()) error

	// Quit asks the application to quit.
	Quit func()

	// SaveDefaultProfile writes the profile to default.xml.
	SaveDefaultProfile func() error

	// PanicHandler receives panics from goroutines the front end starts.
	PanicHandler func(any)

	Logger *slog.Logger
}

// FrontEndFactory builds the front end during startup.
type FrontEndFactory func(deps FrontEndDeps) (FrontEnd, error)

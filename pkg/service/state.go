package service

import (
	"time"

	"github.com/ctlbridge/ctlbridge-go/pkg/persistence"
)

// LoadControlsModel reads settings.xml into the controls model. A missing or
// empty file leaves the defaults; a malformed one is an error.
func (s *Service) LoadControlsModel() error {
	found, err := s.settingsFile.Load(s.controls)
	if err != nil {
		s.logger.Error("controls model load failed", "path", s.settingsFile.Path(), "error", err)
		return err
	}
	if found {
		s.logger.Info("controls model loaded", "path", s.settingsFile.Path())
	}
	return nil
}

// SaveControlsModel writes the controls model to settings.xml. A failure is
// logged and shown to the user.
func (s *Service) SaveControlsModel() error {
	if err := s.settingsFile.Save(s.controls); err != nil {
		s.logger.Error("Unable to save settings.xml", "path", s.settingsFile.Path(), "error", err)
		if fe := s.currentFrontEnd(); fe != nil {
			fe.Alert(s.catalog.T("settings save failed"))
		}
		return err
	}
	s.logger.Info("controls model saved", "path", s.settingsFile.Path())
	return nil
}

// SaveDefaultProfile writes the profile to default.xml. A failure is only
// logged.
func (s *Service) SaveDefaultProfile() error {
	if err := s.defaultProfile.Save(s.profile); err != nil {
		s.logger.Warn("default profile save failed", "path", s.defaultProfile.Path(), "error", err)
		return err
	}
	s.logger.Info("default profile saved", "path", s.defaultProfile.Path())
	return nil
}

// loadDefaultProfile restores the profile saved by the last run. Problems
// leave the profile empty.
func (s *Service) loadDefaultProfile() {
	found, err := s.defaultProfile.Load(s.profile)
	switch {
	case err != nil:
		s.logger.Warn("default profile not loaded", "path", s.defaultProfile.Path(), "error", err)
	case found:
		s.logger.Info("default profile loaded", "path", s.defaultProfile.Path(), "rows", s.profile.Len())
	}
}

func (s *Service) checkPreviousRun() {
	prev, err := s.runState.Load()
	if err != nil {
		s.logger.Warn("run state unreadable", "error", err)
		return
	}
	if prev != nil && !prev.CleanShutdown {
		s.logger.Warn("previous run did not shut down cleanly",
			"session", prev.SessionID, "started_at", prev.StartedAt.Format(time.RFC3339))
	}
}

func (s *Service) saveRunState(clean bool) {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	state := &persistence.RunState{
		SessionID:     s.sessionID,
		StartedAt:     startedAt,
		CleanShutdown: clean,
		Profile:       s.profiles.Current(),
	}
	if err := s.runState.Save(state); err != nil {
		s.logger.Warn("run state save failed", "error", err)
	}
}

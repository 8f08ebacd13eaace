package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/scanner"
)

// StartArtifactScan walks the project roots for build artifacts. Matches are
// published first; sizes follow one by one as they are measured.
func (s *Scanner) StartArtifactScan() (uint64, error) {
	sc := s.artifactScanner()
	return s.startFilesystemScan(VerbArtifacts, sc.Scan)
}

// StartInstallerScan looks for leftover installers in the download folders.
func (s *Scanner) StartInstallerScan() (uint64, error) {
	sc := scanner.NewInstallerScanner(scanner.DefaultInstallerRoots(s.home), s.log)
	sc.Exclude = s.whitelist().Matches
	return s.startFilesystemScan(VerbInstallers, sc.Scan)
}

func (s *Scanner) artifactScanner() *scanner.ArtifactScanner {
	extra, err := config.LoadSearchPaths(s.cfg.SearchPathsPath())
	if err != nil {
		s.log.WithError(err).Warn("Ignoring custom search paths")
	}
	sc := scanner.NewArtifactScanner(scanner.DefaultRoots(s.home, extra), s.cfg.PurgeTargets, s.log)
	if s.cfg.PurgeDepth > 0 {
		sc.MaxDepth = s.cfg.PurgeDepth
	}
	sc.Exclude = s.whitelist().Matches
	return sc
}

// whitelist loads the user's protected patterns. An unreadable file protects
// nothing and is logged.
func (s *Scanner) whitelist() *config.Whitelist {
	wl, err := config.LoadWhitelist(s.cfg.WhitelistPath())
	if err != nil {
		s.log.WithError(err).Warn("Whitelist unavailable")
		return &config.Whitelist{}
	}
	return wl
}

func (s *Scanner) startFilesystemScan(verb string, scan func(context.Context) ([]scanner.DiscoveredPath, error)) (uint64, error) {
	select {
	case <-s.done:
		return 0, errors.New("scanner closed")
	default:
	}

	token := s.issue(verb)
	s.publish(envelope{verb: verb, token: token, kind: kindStarted, dryRun: true})
	s.log.WithFields(logrus.Fields{"verb": verb, "token": token}).Info("Starting filesystem scan")

	s.wg.Add(1)
	go s.runFilesystemScan(verb, token, scan)
	return token, nil
}

func (s *Scanner) runFilesystemScan(verb string, token uint64, scan func(context.Context) ([]scanner.DiscoveredPath, error)) {
	defer s.wg.Done()

	found, err := scan(s.ctx)
	if err != nil {
		s.publish(envelope{verb: verb, token: token, kind: kindFinished, err: err})
		return
	}
	s.publish(envelope{verb: verb, token: token, kind: kindFound, found: append([]scanner.DiscoveredPath(nil), found...)})

	// Only entries without a size yet need measuring.
	var idx []int
	var paths []string
	for i, f := range found {
		if f.SizeBytes == nil {
			idx = append(idx, i)
			paths = append(paths, f.Path)
		}
	}
	sizeErr := s.sizer.Measure(s.ctx, paths, func(i int, size int64, err error) {
		if err == nil {
			s.publish(envelope{verb: verb, token: token, kind: kindSized, index: idx[i], size: size})
		}
	})
	if sizeErr != nil {
		s.log.WithFields(logrus.Fields{"verb": verb, "token": token, "error": sizeErr}).Debug("Some sizes unavailable")
	}

	s.log.WithFields(logrus.Fields{"verb": verb, "token": token, "found": len(found)}).Info("Filesystem scan finished")
	s.publish(envelope{verb: verb, token: token, kind: kindFinished, err: s.ctx.Err()})
}

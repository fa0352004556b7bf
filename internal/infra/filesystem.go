package infra

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
)

// GetWorkDir resolves the configured dot-path, creating it on first use.
func GetWorkDir(path ...string) string {
	workDir, err := homedir.Expand(workDirPath(config.Get().DotPath, path...))
	if err != nil {
		log.Fatalln(err)
	}
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		log.Fatalln(err)
	}
	return workDir
}

func workDirPath(base string, path ...string) string {
	if base == "" {
		base = "~/.gab"
	}
	return filepath.Join(append([]string{base}, path...)...)
}

func GetResourcesPath(path ...string) string {
	return filepath.Join(path...)
}

package i18n

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/Jasonzhang2023/group-assist-bot/internal/infra"
	"github.com/Jasonzhang2023/group-assist-bot/resources"
)

var state = struct {
	once  sync.Once
	texts map[string]string
}{}

func load() {
	state.texts = make(map[string]string)
	raw, err := resources.FS.ReadFile(infra.GetResourcesPath("texts") + "/en.yml")
	if err != nil {
		log.WithError(err).Errorln("cant load texts")
		return
	}
	if err := yaml.Unmarshal(raw, &state.texts); err != nil {
		log.WithError(err).Errorln("cant unmarshal texts")
	}
}

// Get returns the notice template registered under key, or the key itself
// when no template exists.
func Get(key string) string {
	state.once.Do(load)
	if res, ok := state.texts[key]; ok {
		return res
	}
	log.Tracef(`no text for key %q`, key)
	return key
}

// F formats the template registered under key with fmt verbs.
func F(key string, args ...interface{}) string {
	return fmt.Sprintf(Get(key), args...)
}

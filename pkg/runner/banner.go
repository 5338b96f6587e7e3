package runner

import (
	"bytes"
	"os"

	"github.com/dimiro1/banner"
)

const Version = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"VOICESTREAM\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

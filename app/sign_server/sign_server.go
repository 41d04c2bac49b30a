package main

import (
	formatter "github.com/bluexlab/logrus-formatter"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cli"
)

func main() {
	formatter.InitLogger()
	cli := cli.App{}
	cli.Run()
}

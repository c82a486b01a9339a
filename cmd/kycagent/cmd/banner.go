package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _                                      _   
 | | ___   _  ___ __ _  __ _  ___ _ __ | |_ 
 | |/ / | | |/ __/ _` + "`" + ` |/ _` + "`" + ` |/ _ \ '_ \| __|
 |   <| |_| | (_| (_| | (_| |  __/ | | | |_ 
 |_|\_\\__, |\___\__,_|\__, |\___|_| |_|\__|
       |___/           |___/                
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  KYC Field Agent - Version %s\x1b[0m\n\n", Version)
}

package main

import "github.com/ValentinKolb/dReg/cmd"

func main() {
	cmd.Execute()
}

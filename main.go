package main

import "github.com/kamilpajak/crestline/cmd/crestline"

func main() {
	crestline.Execute()
}

// widget prints the newest mirrored image, the way the home-screen widget
// picks what to show.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/Luismorlan/famfeed/mirror"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

func main() {
	root := flag.String("mirror_root", "mirror", "root of the widget mirror")
	flag.Parse()

	m, err := mirror.NewLocalMirror(*root, mirror.NewHTTPFetcher(time.Second))
	if err != nil {
		Logger.Log.Fatal(err)
	}
	path, ok, err := m.Latest()
	if err != nil {
		Logger.Log.Fatal(err)
	}
	if !ok {
		fmt.Println("no image yet")
		return
	}
	fmt.Println(path)
}

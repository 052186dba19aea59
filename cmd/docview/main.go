package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edpaget/ycrdt-bridge/bridge"
	"github.com/edpaget/ycrdt-bridge/handle"
	"github.com/edpaget/ycrdt-bridge/host"
)

func main() {
	var (
		loadFile    = flag.String("load", "", "Path to an encoded update to load")
		saveFile    = flag.String("save", "", "Write the document state as an update to this path")
		clientID    = flag.Uint64("client", 0, "Replica id (random if 0)")
		showJSON    = flag.Bool("json", false, "Print the document as JSON and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *interactive {
		if err := runInteractive(*loadFile, *clientID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*loadFile, *saveFile, *clientID, *showJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(loadFile, saveFile string, clientID uint64, showJSON bool) error {
	b := bridge.New(host.NewLocalRuntime())
	defer b.Close()

	doc, err := newDoc(b, clientID)
	if err != nil {
		return err
	}

	if loadFile != "" {
		update, err := os.ReadFile(loadFile)
		if err != nil {
			return fmt.Errorf("read update: %w", err)
		}
		if err := b.ApplyUpdate(doc, update); err != nil {
			return fmt.Errorf("apply update: %w", err)
		}
	}

	id, err := b.DocClientID(doc)
	if err != nil {
		return err
	}
	names, err := b.DocContainerNames(doc)
	if err != nil {
		return err
	}

	fmt.Printf("Client: %d\n", id)
	fmt.Printf("Containers: %d\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	if showJSON {
		out, err := b.DocToJSON(doc, handle.Zero)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		fmt.Println(out)
	}

	if saveFile != "" {
		update, err := b.EncodeStateAsUpdate(doc)
		if err != nil {
			return fmt.Errorf("encode update: %w", err)
		}
		if err := os.WriteFile(saveFile, update, 0o644); err != nil {
			return fmt.Errorf("write update: %w", err)
		}
		fmt.Printf("Saved %d bytes to %s\n", len(update), saveFile)
	}

	return nil
}

func newDoc(b *bridge.Bridge, clientID uint64) (handle.Handle, error) {
	if clientID != 0 {
		return b.DocNewWithClientID(clientID)
	}
	return b.DocNew()
}

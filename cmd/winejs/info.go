package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JohnDoe6345789/winejs/internal/pe"
)

var directoryNames = [...]string{
	"Export", "Import", "Resource", "Exception", "Security", "BaseReloc",
	"Debug", "Architecture", "GlobalPtr", "TLS", "LoadConfig", "BoundImport",
	"IAT", "DelayImport", "CLR", "Reserved",
}

func showInfo(cmd *cobra.Command, args []string) error {
	setup()
	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	img, err := pe.Parse(data)
	if err != nil {
		return fmt.Errorf("load binary: %w", err)
	}

	fmt.Printf("Binary:    %s\n", filepath.Base(args[0]))
	fmt.Printf("Machine:   0x%x\n", img.Machine)
	fmt.Printf("Subsystem: %d\n", img.Subsystem)
	fmt.Printf("Base:      0x%x\n", img.ImageBase)
	fmt.Printf("Entry:     0x%x (rva 0x%x)\n", img.EntryPoint(), img.EntryRVA)
	fmt.Printf("Size:      0x%x\n\n", img.SizeOfImage)

	fmt.Println("Sections:")
	for _, s := range img.Sections {
		fmt.Printf("  %-8s rva 0x%08x vsize 0x%08x raw 0x%08x+0x%x\n",
			s.Name, s.VirtualAddress, s.VirtualSize, s.PointerToRawData, s.SizeOfRawData)
	}

	fmt.Println("\nData directories:")
	for i, d := range img.DataDirectories {
		if d.RVA == 0 && d.Size == 0 {
			continue
		}
		name := "?"
		if i < len(directoryNames) {
			name = directoryNames[i]
		}
		fmt.Printf("  %-12s rva 0x%08x size 0x%x\n", name, d.RVA, d.Size)
	}

	fmt.Printf("\nImports (%d):\n", len(img.ImportList))
	for _, dll := range img.DLLs() {
		var names []string
		for _, sym := range img.ImportList {
			if sym.DLL == dll {
				names = append(names, sym.Name)
			}
		}
		fmt.Printf("  %s: %s\n", dll, strings.Join(names, ", "))
	}
	if img.ImportErr != nil {
		fmt.Printf("  (truncated: %v)\n", img.ImportErr)
	}
	return nil
}

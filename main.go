package main

import (
	"flag"
	"log"
	"os"

	"kpspiflash/image"
	"kpspiflash/kpspi"
	"kpspiflash/spiflash"
	"kpspiflash/uio"
)

func main() {
	dev := flag.String("dev", "name:kp_spi", "UIO device node or name:<uio-name>")
	cs := flag.Uint("cs", 0, "Chip select of the flash slave")
	bpw := flag.Int("bpw", 8, "Bits per word")
	card := flag.Uint64("card", 0, "Hardware ID of the card, selects the board table entry")
	id := flag.Bool("id", false, "Print the flash device ID")
	erase := flag.Bool("erase", false, "Erase the whole chip")
	readFile := flag.String("read", "", "Dump the flash contents to a file")
	writeFile := flag.String("write", "", "Program a firmware image file")
	raw := flag.Bool("raw", false, "Program the file as-is, skip image validation")

	flag.Parse()

	u, err := uio.Open(*dev)
	if err != nil {
		log.Fatalln(err)
	}
	defer u.Close()

	win, err := kpspi.NewMemWindow(u.Mem())
	if err != nil {
		log.Fatalln(err)
	}

	ctrl := kpspi.NewController(win, u.Phys())
	ctrl.LogFunc = log.Printf

	chipSelect := uint8(*cs)
	bitsPerWord := *bpw

	if *card != 0 {
		board, ok := spiflash.BoardLookup(uint32(*card))
		if !ok {
			log.Fatalf("unknown hardware ID %08x, no board table", *card)
		}

		slave := board.Slaves[0]
		log.Printf("board %s, slave %q on cs %d", board.Name, slave.Name, slave.ChipSelect)
		chipSelect = slave.ChipSelect
		bitsPerWord = slave.BitsPerWord
	}

	d := ctrl.NewDevice(chipSelect, bitsPerWord)
	if err := ctrl.Setup(d); err != nil {
		log.Fatalln(err)
	}
	defer ctrl.Cleanup(d)

	flash, err := spiflash.New(func(m *kpspi.Message) error {
		return ctrl.DoMessage(d, m)
	})
	if err != nil {
		log.Fatalln(err)
	}

	switch {
	case *id:
		log.Printf("flash device ID: %x", flash.DeviceID())

	case *erase:
		if err := flash.EraseChip(); err != nil {
			log.Fatalln(err)
		}

	case *readFile != "":
		buf := make([]byte, flash.Size())
		if _, err := flash.Read(0, buf); err != nil {
			log.Fatalln(err)
		}
		if err := os.WriteFile(*readFile, buf, 0644); err != nil {
			log.Fatalln(err)
		}

	case *writeFile != "":
		buf, err := os.ReadFile(*writeFile)
		if err != nil {
			log.Fatalln(err)
		}

		if !*raw {
			buf, err = image.Payload(buf)
			if err != nil {
				log.Fatalln(err)
			}
		}

		n, err := flash.Write(0, buf)
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("programmed %d bytes", n)

	default:
		flag.Usage()
	}
}

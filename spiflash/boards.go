package spiflash

/* Board tables: which flash slaves sit behind a given card, selected
 * by the high half of the hardware ID the card reports. */

type Partition struct {
	Name   string
	Offset uint32
	Size   uint32
}

type Slave struct {
	Name        string
	ChipSelect  uint8
	BitsPerWord int
	Partitions  []Partition
}

type Board struct {
	Name   string
	CardID uint16
	Slaves []Slave
}

var boards = []Board{
	{
		Name:   "p2kr0",
		CardID: 0x4b02,
		Slaves: []Slave{
			{
				Name:        "system flash",
				ChipSelect:  0,
				BitsPerWord: 8,
				Partitions: []Partition{
					{Name: "golden", Offset: 0x000000, Size: 0x080000},
					{Name: "image", Offset: 0x080000, Size: 0x080000},
				},
			},
		},
	},
}

func BoardLookup(cardID uint32) (Board, bool) {
	id := uint16(cardID >> 16)

	for _, b := range boards {
		if b.CardID == id {
			return b, true
		}
	}
	return Board{}, false
}

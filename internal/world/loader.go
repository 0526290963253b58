package world

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ambonmud/ambonmud/internal/model"
)

// zoneFile is the YAML authoring format of one zone.
type zoneFile struct {
	Zone      string     `yaml:"zone"`
	StartRoom string     `yaml:"start_room"`
	Rooms     []roomDef  `yaml:"rooms"`
	Items     []itemDef  `yaml:"items"`
	Mobs      []mobDef   `yaml:"mobs"`
	Spawns    []spawnDef `yaml:"spawns"`
	Ground    []groundDef `yaml:"ground_items"`
}

type roomDef struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Exits       map[string]string `yaml:"exits"`
}

type itemDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Slot        string `yaml:"slot"`
	DamageBonus int    `yaml:"damage_bonus"`
	ArmorBonus  int    `yaml:"armor_bonus"`
}

type mobDef struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Level    int    `yaml:"level"`
	MaxHP    int    `yaml:"max_hp"`
	Damage   int    `yaml:"damage"`
	Armor    int    `yaml:"armor"`
	XPReward int64  `yaml:"xp_reward"`
	Wanders  bool   `yaml:"wanders"`
}

type spawnDef struct {
	Mob   string `yaml:"mob"`
	Room  string `yaml:"room"`
	Count int    `yaml:"count"`
}

type groundDef struct {
	Item string `yaml:"item"`
	Room string `yaml:"room"`
}

// Load reads every world resource into a fresh World and verifies that all
// exits resolve. A broken world file refuses to start the server.
func Load(paths []string) (*World, error) {
	w := New()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading world file %s: %w", path, err)
		}
		if err := w.loadZone(data, path); err != nil {
			return nil, err
		}
	}
	if err := w.checkExits(); err != nil {
		return nil, err
	}
	if w.defaultStart == "" {
		return nil, fmt.Errorf("no start_room defined in any world file")
	}
	slog.Info("world loaded",
		"rooms", len(w.rooms),
		"mob_templates", len(w.mobTemplates),
		"item_templates", len(w.itemTemplates),
		"spawns", len(w.spawns))
	return w, nil
}

// LoadFromBytes parses one in-memory zone document. For tests.
func LoadFromBytes(docs ...[]byte) (*World, error) {
	w := New()
	for i, data := range docs {
		if err := w.loadZone(data, fmt.Sprintf("doc[%d]", i)); err != nil {
			return nil, err
		}
	}
	if err := w.checkExits(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) loadZone(data []byte, source string) error {
	var zf zoneFile
	if err := yaml.Unmarshal(data, &zf); err != nil {
		return fmt.Errorf("parsing world file %s: %w", source, err)
	}
	if zf.Zone == "" {
		return fmt.Errorf("world file %s: zone name is required", source)
	}
	zone := model.Zone(zf.Zone)

	for _, rd := range zf.Rooms {
		id, err := qualifyRoom(zone, rd.ID)
		if err != nil {
			return fmt.Errorf("world file %s: %w", source, err)
		}
		if _, dup := w.rooms[id]; dup {
			return fmt.Errorf("world file %s: duplicate room %s", source, id)
		}
		room := &model.Room{
			ID:          id,
			Title:       rd.Title,
			Description: rd.Description,
			Exits:       make(map[model.Direction]model.RoomID, len(rd.Exits)),
		}
		for dirWord, target := range rd.Exits {
			dir, ok := model.ParseDirection(dirWord)
			if !ok {
				return fmt.Errorf("world file %s: room %s: unknown exit direction %q", source, id, dirWord)
			}
			dst, err := qualifyRoom(zone, target)
			if err != nil {
				return fmt.Errorf("world file %s: room %s: %w", source, id, err)
			}
			room.Exits[dir] = dst
		}
		w.rooms[id] = room
	}

	if zf.StartRoom != "" {
		start, err := qualifyRoom(zone, zf.StartRoom)
		if err != nil {
			return fmt.Errorf("world file %s: start_room: %w", source, err)
		}
		w.startRooms[zone] = start
		if w.defaultStart == "" {
			w.defaultStart = start
		}
	}

	for _, id := range zf.Items {
		iid := model.ItemID(string(zone) + ":" + id.ID)
		if strings.Contains(id.ID, ":") {
			iid = model.ItemID(id.ID)
		}
		slot := model.SlotNone
		switch strings.ToLower(id.Slot) {
		case "weapon":
			slot = model.SlotWeapon
		case "armor":
			slot = model.SlotArmor
		case "", "none":
		default:
			return fmt.Errorf("world file %s: item %s: unknown slot %q", source, iid, id.Slot)
		}
		w.itemTemplates[iid] = &model.ItemTemplate{
			ID:          iid,
			Name:        id.Name,
			Slot:        slot,
			DamageBonus: id.DamageBonus,
			ArmorBonus:  id.ArmorBonus,
		}
	}

	for _, md := range zf.Mobs {
		mid := model.MobID(string(zone) + ":" + md.ID)
		if strings.Contains(md.ID, ":") {
			mid = model.MobID(md.ID)
		}
		if md.MaxHP <= 0 {
			return fmt.Errorf("world file %s: mob %s: max_hp must be > 0", source, mid)
		}
		w.mobTemplates[mid] = &model.MobTemplate{
			ID:       mid,
			Name:     md.Name,
			Level:    md.Level,
			MaxHP:    md.MaxHP,
			Damage:   md.Damage,
			Armor:    md.Armor,
			XPReward: md.XPReward,
			Wanders:  md.Wanders,
		}
	}

	for _, sd := range zf.Spawns {
		room, err := qualifyRoom(zone, sd.Room)
		if err != nil {
			return fmt.Errorf("world file %s: spawn: %w", source, err)
		}
		mob := model.MobID(string(zone) + ":" + sd.Mob)
		if strings.Contains(sd.Mob, ":") {
			mob = model.MobID(sd.Mob)
		}
		count := sd.Count
		if count <= 0 {
			count = 1
		}
		w.spawns = append(w.spawns, Spawn{Mob: mob, Room: room, Count: count})
	}

	for _, gd := range zf.Ground {
		room, err := qualifyRoom(zone, gd.Room)
		if err != nil {
			return fmt.Errorf("world file %s: ground item: %w", source, err)
		}
		item := model.ItemID(string(zone) + ":" + gd.Item)
		if strings.Contains(gd.Item, ":") {
			item = model.ItemID(gd.Item)
		}
		w.DropItem(room, item)
	}

	return nil
}

// qualifyRoom resolves a local room name against its zone; references that
// already carry a zone prefix pass through.
func qualifyRoom(zone model.Zone, ref string) (model.RoomID, error) {
	if ref == "" {
		return "", fmt.Errorf("empty room reference")
	}
	if strings.Contains(ref, ":") {
		return model.ParseRoomID(ref)
	}
	return model.RoomID(string(zone) + ":" + ref), nil
}

// checkExits verifies every exit, spawn and ground item resolves to a
// loaded room or template. Dangling cross-zone exits are allowed only as a
// warning: the target zone may be hosted by another engine.
func (w *World) checkExits() error {
	zones := make(map[model.Zone]bool)
	for id := range w.rooms {
		zones[id.Zone()] = true
	}
	for id, room := range w.rooms {
		for dir, dst := range room.Exits {
			if w.rooms[dst] != nil {
				continue
			}
			if zones[dst.Zone()] {
				return fmt.Errorf("room %s: exit %s points to missing room %s", id, dir, dst)
			}
			slog.Warn("exit targets a zone not loaded here; assuming remote", "room", id, "exit", dst)
		}
	}
	for _, s := range w.spawns {
		if w.rooms[s.Room] == nil {
			return fmt.Errorf("spawn of %s: room %s not loaded", s.Mob, s.Room)
		}
		if w.mobTemplates[s.Mob] == nil {
			return fmt.Errorf("spawn in %s: mob template %s not defined", s.Room, s.Mob)
		}
	}
	for room, items := range w.groundItems {
		if w.rooms[room] == nil {
			return fmt.Errorf("ground items in %s: room not loaded", room)
		}
		for _, it := range items {
			if w.itemTemplates[it] == nil {
				return fmt.Errorf("ground item %s in %s: template not defined", it, room)
			}
		}
	}
	return nil
}

package confdesk

import (
	"sync"

	"fyne.io/systray"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/device"
)

// menuEntry is the part of a tray menu item a deviceMenu drives
type menuEntry interface {
	SetTitle(title string)
	Show()
	Hide()
	Check()
	Uncheck()
}

// deviceMenu is a radio-style submenu choosing the device for one session slot.
// Menu items can't be removed, so devices that go away are hidden instead.
type deviceMenu struct {
	logger *zap.SugaredLogger

	addItem  func(d device.Device) (menuEntry, <-chan struct{})
	list     func() []device.Device
	selected func() *device.Device
	selectFn func(*device.Device)

	lock    sync.Mutex
	items   map[string]menuEntry
	devices map[string]device.Device
}

func newDeviceMenu(
	logger *zap.SugaredLogger,
	addItem func(d device.Device) (menuEntry, <-chan struct{}),
	list func() []device.Device,
	selected func() *device.Device,
	selectFn func(*device.Device),
) *deviceMenu {
	return &deviceMenu{
		logger:   logger,
		addItem:  addItem,
		list:     list,
		selected: selected,
		selectFn: selectFn,
		items:    make(map[string]menuEntry),
		devices:  make(map[string]device.Device),
	}
}

// subMenuItems adds device checkboxes below parent
func subMenuItems(parent *systray.MenuItem) func(d device.Device) (menuEntry, <-chan struct{}) {
	return func(d device.Device) (menuEntry, <-chan struct{}) {
		item := parent.AddSubMenuItemCheckbox(d.Name, d.Key(), false)
		return item, item.ClickedCh
	}
}

// refresh syncs the items with the present devices and checks the selected one
func (dm *deviceMenu) refresh() {
	present := dm.list()
	selected := dm.selected()

	dm.lock.Lock()
	defer dm.lock.Unlock()

	visible := make(map[string]struct{}, len(present))

	for _, d := range present {
		visible[d.HardwareID] = struct{}{}
		dm.devices[d.HardwareID] = d

		item, ok := dm.items[d.HardwareID]
		if !ok {
			var clicks <-chan struct{}
			item, clicks = dm.addItem(d)
			dm.items[d.HardwareID] = item

			go dm.handleClicks(clicks, d.HardwareID)
		}

		item.SetTitle(d.Name)
		item.Show()
	}

	for hardwareID, item := range dm.items {
		if _, ok := visible[hardwareID]; !ok {
			item.Hide()
		}

		if isSelected(hardwareID, selected) {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

func (dm *deviceMenu) handleClicks(clicks <-chan struct{}, hardwareID string) {
	for range clicks {
		dm.lock.Lock()
		d := dm.devices[hardwareID]
		for id, item := range dm.items {
			if id == hardwareID {
				item.Check()
			} else {
				item.Uncheck()
			}
		}
		dm.lock.Unlock()

		dm.logger.Infow("Device selected from tray", "device", d)
		dm.selectFn(&d)
	}
}

func isSelected(hardwareID string, selected *device.Device) bool {
	return selected != nil && selected.HardwareID == hardwareID
}

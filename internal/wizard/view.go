package wizard

import (
	"fmt"
	"strings"

	"github.com/muurk/edgent/internal/client"
	"github.com/muurk/edgent/internal/discovery"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/ui"
)

type deviceItem struct{ d *discovery.Device }

func (i deviceItem) Title() string { return i.d.Name }

func (i deviceItem) Description() string {
	desc := i.d.Addr()
	if i.d.TemplateID != "" {
		desc += " • " + i.d.TemplateID
	}
	if i.d.Firmware != "" {
		desc += " • fw " + i.d.Firmware
	}
	return desc
}

func (i deviceItem) FilterValue() string { return i.d.Name + " " + i.d.UID + " " + i.d.IP }

type networkItem struct{ n scan.Network }

func (i networkItem) Title() string { return i.n.SSID }

func (i networkItem) Description() string {
	return fmt.Sprintf("%s %d dBm • %s • ch %d", ui.SignalBars(i.n.RSSI), i.n.RSSI, i.n.Security, i.n.Channel)
}

func (i networkItem) FilterValue() string { return i.n.SSID }

// View renders the active screen.
func (m Model) View() string {
	var content string
	switch m.Screen {
	case ScreenDiscovery:
		content = m.viewDiscovery()
	case ScreenNetworks:
		content = m.viewNetworks()
	case ScreenCredentials:
		content = m.viewCredentials()
	case ScreenApplying:
		content = fmt.Sprintf("%s Sending configuration to %s...", m.spinner.View(), m.selected.Name)
	case ScreenSuccess:
		content = m.viewSuccess()
	case ScreenFailure:
		content = m.viewFailure()
	}
	return frame(content, m.help.View(m.keys.forScreen(m.Screen)), m.width)
}

func (m Model) viewDiscovery() string {
	switch {
	case m.manualOn:
		return subtitleStyle.Render("Portal address of the device") + "\n\n  " + m.manual.View()
	case m.loading:
		return fmt.Sprintf("%s Looking for devices in configuration mode...", m.spinner.View())
	case m.Err != nil:
		return errorStyle.Render("Discovery failed: "+m.Err.Error()) + "\n\n" +
			subtitleStyle.Render("Press m to enter the device address, usually "+client.DefaultAddress)
	case len(m.devices.Items()) == 0:
		return ui.WarningTitleStyle.Render(ui.MarkerWarning+" No devices found") + "\n\n" +
			subtitleStyle.Render("Join the device hotspot and press r, or press m to enter its address")
	}
	return m.devices.View()
}

func (m Model) viewNetworks() string {
	if m.loading {
		return fmt.Sprintf("%s Asking %s for visible networks...", m.spinner.View(), m.selected.Name)
	}

	var b strings.Builder
	if m.info != nil {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s • %s %s", m.info.SSID, m.info.FirmwareType, m.info.FirmwareVersion)))
		b.WriteString("\n\n")
	}
	if len(m.networks.Items()) == 0 {
		b.WriteString(subtitleStyle.Render("The device reported no networks. Press h to type the network name."))
		return b.String()
	}
	b.WriteString(m.networks.View())
	return b.String()
}

func (m Model) viewCredentials() string {
	labels := [fieldCount]string{"SSID", "Password", "Token"}

	var b strings.Builder
	b.WriteString(subtitleStyle.Render("Configure " + m.selected.Name))
	b.WriteString("\n\n")
	for i, in := range m.inputs {
		style := labelStyle
		if i == m.focus {
			style = focusedLabelStyle
		}
		b.WriteString(style.Render(labels[i]))
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if m.cfg.Host != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Cloud"))
		b.WriteString(m.cfg.Host)
		if m.cfg.Port != 0 {
			b.WriteString(fmt.Sprintf(":%d", m.cfg.Port))
		}
		b.WriteString("\n")
	}
	if m.formErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.formErr.Error()))
	}
	return b.String()
}

func (m Model) viewSuccess() string {
	var b strings.Builder
	b.WriteString(successStyle.Render(ui.MarkerComplete + " Configuration accepted"))
	b.WriteString("\n\n")
	if m.result != nil && m.result.Msg != "" {
		b.WriteString("  " + m.result.Msg + "\n\n")
	}
	b.WriteString(subtitleStyle.Render(fmt.Sprintf(
		"%s is leaving configuration mode and joining %s. If it cannot connect it reopens its hotspot; 'edgent-cfg info' then shows why.",
		m.selected.Name, m.inputs[fieldSSID].Value())))
	return b.String()
}

func (m Model) viewFailure() string {
	var b strings.Builder
	b.WriteString(ui.ErrorTitleStyle.Render(ui.MarkerFailure + " Setup failed"))
	b.WriteString("\n\n")
	if m.Err != nil {
		b.WriteString(ui.ErrorMessageStyle.Render(m.Err.Error()))
		b.WriteString("\n\n")
		if hint := client.GetTroubleshootingHint(m.Err); hint != "" {
			b.WriteString(ui.HintStyle.Render(hint))
		}
	}
	return b.String()
}

package core

import "github.com/themadorg/mailaggregator/entity"

func (c *Core) GetSettings() (*entity.Settings, error) {
	return c.store.GetSettings()
}

func (c *Core) PatchSettings(p *entity.SettingsPatch) (*entity.Settings, error) {
	return c.store.PatchSettings(p)
}

func (c *Core) ExportSettings() (*entity.SettingsExport, error) {
	return c.store.ExportSettings()
}

func (c *Core) ImportSettings(export *entity.SettingsExport) error {
	return c.store.ImportSettings(export)
}

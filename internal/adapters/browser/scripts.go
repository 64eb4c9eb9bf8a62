package browser

// Page scripts evaluated through rod's Eval. Each is a function expression.

// fillByLabelJS finds the control whose <label> text contains the label
// (case-insensitive), sets its value, and fires input and change events.
const fillByLabelJS = `(label, value) => {
	const want = label.toLowerCase();
	for (const l of document.querySelectorAll('label')) {
		if (!l.textContent.toLowerCase().includes(want)) continue;
		let el = l.htmlFor ? document.getElementById(l.htmlFor) : null;
		if (!el) el = l.querySelector('input, textarea');
		if (!el || el.type === 'hidden' || el.disabled) continue;
		el.focus();
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	}
	return false;
}`

// chooseByLabelJS selects the option containing the option text in the
// dropdown for label. It handles native <select> elements and the portal's
// nesty widgets, whose hidden input sits next to an <a class="nesty-input">
// that opens a list of <li> options.
const chooseByLabelJS = `async (label, option) => {
	const want = label.toLowerCase();
	const pick = option.toLowerCase();
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	for (const l of document.querySelectorAll('label')) {
		if (!l.textContent.toLowerCase().includes(want)) continue;
		const el = l.htmlFor ? document.getElementById(l.htmlFor) : l.querySelector('select, input');
		if (!el) continue;

		if (el.tagName === 'SELECT') {
			for (const o of el.options) {
				if (o.textContent.toLowerCase().includes(pick)) {
					el.value = o.value;
					el.dispatchEvent(new Event('change', { bubbles: true }));
					return true;
				}
			}
			return false;
		}

		const opener = el.parentElement && el.parentElement.querySelector('a.nesty-input');
		if (!opener) continue;
		opener.click();
		await sleep(300);
		for (const li of document.querySelectorAll('.nesty-panel li, li[role="option"]')) {
			if (li.offsetParent !== null && li.textContent.toLowerCase().includes(pick)) {
				li.click();
				await sleep(300);
				return true;
			}
		}
		document.body.click();
		return false;
	}
	return false;
}`

// exportStorageJS returns localStorage as a JSON object string.
const exportStorageJS = `() => {
	try {
		const out = {};
		for (const key of Object.keys(localStorage)) out[key] = localStorage.getItem(key);
		return JSON.stringify(out);
	} catch (e) {
		return "{}";
	}
}`

// importStorageJS restores a JSON object string into localStorage.
const importStorageJS = `(data) => {
	try {
		const items = JSON.parse(data || "{}");
		Object.entries(items).forEach(([k, v]) => localStorage.setItem(k, v));
		return true;
	} catch (e) {
		return false;
	}
}`

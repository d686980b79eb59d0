package automation

// Page scripts. Each is a function expression evaluated by rod.

const jsCSRFField = `(name) => {
	const i = document.querySelector('input[name="' + name + '"]');
	return i ? i.value : '';
}`

const jsSelectedIDs = `(sel) => {
	const s = document.querySelector(sel);
	if (!s) return [];
	return Array.from(s.querySelectorAll('option')).map(o => o.value).filter(v => v.trim() !== '');
}`

const jsInstallWatch = `(sel) => {
	if (window.__sparePartWatch) return;
	const s = document.querySelector(sel);
	if (!s) return;
	window.__sparePartWatch = true;
	window.__sparePartChanges = 0;
	window.__sparePartEdits = [];
	const bump = () => { window.__sparePartChanges++; };
	s.addEventListener('change', bump);
	new MutationObserver(bump).observe(s, {childList: true, subtree: true, attributes: true});
	document.addEventListener('input', (e) => {
		const el = e.target;
		if (!el || !el.id || !el.id.startsWith('qty-')) return;
		window.__sparePartEdits.push([el.dataset.uniqueKey, el.value]);
	});
}`

const jsPoll = `() => {
	const edits = (window.__sparePartEdits || []).splice(0);
	return {changes: window.__sparePartChanges || 0, edits: edits};
}`

// jsMoveOptions moves options between the two sides of the selector and
// returns the values left on the chosen side.
const jsMoveOptions = `(fromSel, toSel, ids, into) => {
	const from = document.querySelector(into ? fromSel : toSel);
	const to = document.querySelector(into ? toSel : fromSel);
	const chosen = document.querySelector(toSel);
	if (!to || !chosen) return [];
	for (const id of ids) {
		const opt = from ? Array.from(from.options).find(o => o.value === id) : null;
		if (!opt) continue;
		opt.selected = into;
		to.appendChild(opt);
	}
	chosen.dispatchEvent(new Event('change', {bubbles: true}));
	return Array.from(chosen.options).map(o => o.value);
}`

const jsHiddenValues = `(prefix) => {
	return Array.from(document.querySelectorAll('input[type="hidden"]'))
		.filter(i => i.name.startsWith(prefix + '['))
		.map(i => {
			const m = /\[(\d+)\]/.exec(i.name);
			return {idx: m ? parseInt(m[1], 10) : -1, value: i.value};
		})
		.sort((a, b) => a.idx - b.idx)
		.map(e => e.value);
}`

const jsReplaceHidden = `(prefix, anchor, fields) => {
	const a = document.querySelector(anchor);
	const form = (a && a.closest('form')) || document.querySelector('form');
	if (!form) return false;
	form.querySelectorAll('input[type="hidden"]').forEach(i => {
		if (i.name.startsWith(prefix + '[')) i.remove();
	});
	for (const f of fields) {
		const input = document.createElement('input');
		input.type = 'hidden';
		input.name = f.Name;
		input.value = f.Value;
		form.appendChild(input);
	}
	return true;
}`

const jsRenderBlock = `(anchor, block, rows) => {
	let list = document.querySelector('.custom-choice-spare_part .spare-parts-list');
	if (!list) {
		const a = document.querySelector(anchor);
		if (!a) return false;
		a.insertAdjacentHTML('afterend', block);
		return true;
	}
	list.innerHTML = rows;
	return true;
}`

const jsUpdateRemaining = `(key, text) => {
	for (const row of document.querySelectorAll('div.spare-part-row')) {
		if (row.dataset.uniqueKey !== key) continue;
		const span = row.querySelector('span.available-qty');
		if (span) span.textContent = text;
		return true;
	}
	return false;
}`

const jsQuantityInputs = `() => {
	return Array.from(document.querySelectorAll('input[id^="qty-"]'))
		.map(i => [i.dataset.uniqueKey || '', i.value]);
}`

const jsSetQuantityInput = `(key, text) => {
	for (const i of document.querySelectorAll('input[id^="qty-"]')) {
		if (i.dataset.uniqueKey !== key) continue;
		i.value = text;
		return true;
	}
	return false;
}`

const jsSubmitForm = `(anchor) => {
	const a = document.querySelector(anchor);
	const form = (a && a.closest('form')) || document.querySelector('form');
	if (!form) return false;
	form.submit();
	return true;
}`
